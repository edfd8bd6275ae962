package main

import (
	"flag"
	"log"
)

var (
	GitCommit string
	GitTag    string
	BuildTime string
)

//	@title						Library Lending API
//	@version					1.0
//	@description				Users, books catalog and loans with bearer token authentication.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
func main() {
	configFile := flag.String("config", "config.yml", "path to the yaml configuration file")
	envFile := flag.String("env", "config.env", "path to the optional dotenv file")
	flag.Parse()

	app, err := NewApp(*configFile, *envFile)
	if err != nil {
		log.Fatal("application failed to initialized: ", err)
	}
	err = app.Run()
	if err != nil {
		log.Fatal("application exited. check logs for more details.", err)
	}
}
