// Package database provides connection management, the shared write session
// used by repositories, migrations, foreign key handling, configuration
// types, logging and health checks, built on top of Bun.
package database
