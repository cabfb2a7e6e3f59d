// main.go
//
// Multi-tenant ESG assessment and benchmarking platform core
// Copyright (c) 2026 Greenlattice <dev@greenlattice.io>
//
// This file is part of esgbench.
// esgbench is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// esgbench is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with esgbench.
// If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/greenlattice/esgbench/internal/config"
	"github.com/greenlattice/esgbench/internal/database"
	"github.com/greenlattice/esgbench/internal/services"
	"go.uber.org/zap"
)

func main() {
	zlog, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal("failed to load configuration", zap.Error(err))
	}

	// Connect to database
	db, err := database.Connect(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	// Perform health check
	result := services.HealthCheck(cfg, db, zlog)

	// Output result as JSON
	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		zlog.Fatal("failed to marshal health check result", zap.Error(err))
	}

	fmt.Println(string(output))

	if result.Status != "healthy" {
		os.Exit(1)
	}
	os.Exit(0)
}
