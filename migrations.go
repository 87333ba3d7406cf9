// Package usermgmt holds assets shared by the binaries of the user management
// service.
package usermgmt

import "embed"

// Migrations contains the goose SQL migrations applied by the migrate command.
//
//go:embed migrations/*.sql
var Migrations embed.FS
