// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package data embeds the SQL migrations shipped with the console binary.
package data

import "embed"

// MigrationsDir is the directory of [Migrations] holding the .sql files.
const MigrationsDir = "migrations"

// Migrations holds the golang-migrate files for the profile table.
//
//go:embed migrations/*.sql
var Migrations embed.FS
