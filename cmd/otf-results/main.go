package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	otfres "github.com/nsip/otf-results"
	"github.com/nsip/otf-results/internal/sheets"
	"github.com/peterbourgon/ff/v3"
)

func main() {

	// optional local .env holding the google credentials
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Println("cannot read .env file: ", err)
	}

	fs := flag.NewFlagSet("otf-results", flag.ExitOnError)
	var (
		_              = fs.String("config", "", "config file (optional), json format.")
		serviceName    = fs.String("name", "", "name for this results service instance")
		serviceID      = fs.String("id", "", "id for this results service instance, leave blank to auto-generate a unique id")
		serviceHost    = fs.String("host", "localhost", "name/address of host for this service")
		servicePort    = fs.Int("port", 0, "port to run service on, if not specified will assign an available port automatically")
		spreadsheetID  = fs.String("spreadsheetId", os.Getenv("GOOGLE_SPREADSHEET_ID"), "id of the google spreadsheet holding test results")
		serviceAccount = fs.String("serviceAccountEmail", os.Getenv("GOOGLE_SERVICE_ACCOUNT_EMAIL"), "email of the google service account used to read the spreadsheet")
		privateKey     = fs.String("privateKey", os.Getenv("GOOGLE_PRIVATE_KEY"), "PEM private key of the service account, \\n escapes allowed")
		maxFetches     = fs.Int("maxFetches", 5, "max number of sheets fetched in parallel when checking attendance")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.JSONParser),
		ff.WithEnvVarPrefix("OTF_RESULTS_SRVC"),
	); err != nil {
		fmt.Printf("\nCannot parse otf-results configuration:\n%s\n\n", err)
		os.Exit(1)
	}

	opts := []otfres.Option{
		otfres.Name(*serviceName),
		otfres.ID(*serviceID),
		otfres.Host(*serviceHost),
		otfres.Port(*servicePort),
		otfres.MaxConcurrentFetches(*maxFetches),
		otfres.Sheets(sheets.Config{
			SpreadsheetID:       *spreadsheetID,
			ServiceAccountEmail: *serviceAccount,
			PrivateKey:          *privateKey,
		}),
	}

	srvc, err := otfres.New(opts...)
	if err != nil {
		fmt.Printf("\nCannot create otf-results service:\n%s\n\n", err)
		return
	}

	srvc.PrintConfig()

	// signal handler for shutdown
	closed := make(chan struct{})
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("\notf-results shutting down")
		srvc.Shutdown()
		fmt.Println("otf-results closed")
		close(closed)
	}()

	srvc.Start()

	// block until shutdown by sig-handler
	<-closed

}
