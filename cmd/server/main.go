package main

import "caerp/internal/app"

// @title CA-ERP API
// @version 1.0
// @description Practice management backend for a chartered accountancy firm: clients, projects, tasks, time tracking and invoicing.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app.Run()
}
