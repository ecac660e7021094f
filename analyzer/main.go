package main

import (
	"flag"
	"fmt"
	"time"

	shaper "github.com/next-exp/shaper_go/pkg"
	"github.com/next-exp/shaper_go/pkg/h5store"
)

var logger shaper.SlogLogger

func init() {
	logger = shaper.NewStdLogger()
}

func main() {
	configFilename := flag.String("config", "", "Configuration file path")
	flag.Parse()

	configuration, err := shaper.LoadConfiguration(*configFilename)
	if err != nil {
		message := fmt.Errorf("Error reading configuration file: %w", err)
		logger.Error(message.Error())
		return
	}
	shaper.SetLogger(logger)

	if configuration.Verbosity > 0 {
		message := fmt.Sprintf("Reading configuration file: %s", *configFilename)
		logger.Info(message, "main")
		printConfiguration(configuration, logger)
	}

	reader, err := h5store.Open(configuration.FileIn)
	if err != nil {
		message := fmt.Errorf("Error opening file: %w", err)
		logger.Error(message.Error())
		return
	}
	defer reader.Close()

	table := shaper.NewChannelTable(configuration)
	if !configuration.Database.NoDB {
		db := configuration.Database
		dbConn, err := shaper.ConnectToDatabase(db.User, db.Passwd, db.Host, db.DBName)
		if err != nil {
			message := fmt.Errorf("Error connection to database: %w", err)
			logger.Error(message.Error())
			return
		}
		defer dbConn.Close()
		if err := shaper.LoadRunMetadata(dbConn, db.RunNumber, &table); err != nil {
			return
		}
	}

	analysis, err := shaper.NewAnalysis(configuration, reader, shaper.WithChannelTable(table))
	if err != nil {
		logger.Error(err.Error())
		return
	}
	logger.Info(fmt.Sprintf("Run id: %s", analysis.ID()), "main")

	start := time.Now()
	for _, result := range analysis.Analyze() {
		printResult(result, logger)
	}
	duration := time.Since(start)
	logger.Info(fmt.Sprintf("Total time: %d ms", duration.Milliseconds()), "main")
}
