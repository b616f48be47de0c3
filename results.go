package otfresults

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/nsip/otf-results/internal/sheets"
	"github.com/pkg/errors"
)

const defaultMaxFetches = 5

type OtfResultsService struct {
	// embedded web server to handle results requests
	e *echo.Echo
	// the unique name of this service when running multiple instances
	serviceName string
	// the unique id of this service when running multiple instances
	serviceID string
	// the host address this service instance is running on
	serviceHost string
	// the port that this service instance is running on
	servicePort int
	// credentials for the results spreadsheet
	sheetsConfig sheets.Config
	// where result tables are read from
	source sheets.Source
	// set when no usable source could be built from sheetsConfig
	configErr error
	// max tabs fetched in parallel for attendance checks
	maxFetches int
}

//
// Query parameters sent to the
// results endpoint.
//
type SheetsRequest struct {
	//
	// one of list | check-attendance | get
	//
	Action string `query:"action"`
	//
	// the student's roll number, may be given with or
	// without an account suffix
	//
	RollNumber string `query:"rollNumber"`
	//
	// name of the tab (test) to look up, used by get
	//
	Sheet string `query:"sheet"`
}

//
// create a new service instance
//
func New(options ...Option) (*OtfResultsService, error) {

	srvc := OtfResultsService{maxFetches: defaultMaxFetches}

	if err := srvc.setOptions(options...); err != nil {
		return nil, err
	}

	srvc.e = echo.New()
	srvc.e.HideBanner = true
	srvc.e.Logger.SetLevel(log.INFO)
	srvc.e.HTTPErrorHandler = jsonErrorHandler
	srvc.e.Use(middleware.Recover())
	srvc.e.Use(middleware.Logger())

	if srvc.source == nil {
		src, err := sheets.New(context.Background(), srvc.sheetsConfig)
		if err != nil {
			srvc.configErr = err
			srvc.e.Logger.Warn("spreadsheet access unavailable: ", err)
		} else {
			srvc.source = src
		}
	}

	// add pingable method to know we're up
	srvc.e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":      "OK",
			"serviceName": srvc.serviceName,
			"serviceID":   srvc.serviceID,
		})
	})
	// add results method
	srvc.e.GET("/api/sheets", srvc.buildSheetsHandler())

	return &srvc, nil
}

//
// start the service running
//
func (s *OtfResultsService) Start() {

	address := fmt.Sprintf("%s:%d", s.serviceHost, s.servicePort)
	go func(addr string) {
		if err := s.e.Start(addr); err != nil && err != http.ErrServerClosed {
			s.e.Logger.Info("error starting server: ", err, ", shutting down...")
			// attempt clean shutdown by raising sig int
			p, _ := os.FindProcess(os.Getpid())
			p.Signal(os.Interrupt)
		}
	}(address)

}

//
// creates the results method
// requires query parameters
// action: one of (list|check-attendance|get)
// rollNumber: student roll number, for check-attendance and get
// sheet: tab name of the test, for get
//
func (s *OtfResultsService) buildSheetsHandler() echo.HandlerFunc {

	return func(c echo.Context) error {

		// nothing can be answered without the spreadsheet
		if s.configErr != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, s.configErr.Error())
		}

		sr := &SheetsRequest{}
		if err := c.Bind(sr); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		rollNumber := strings.TrimSpace(sr.RollNumber)
		ctx := c.Request().Context()

		switch sr.Action {
		case "list":
			names, err := s.source.SheetNames(ctx)
			if err != nil {
				return s.upstreamError(err)
			}
			return c.JSON(http.StatusOK, map[string]interface{}{"sheets": names})

		case "check-attendance":
			if rollNumber == "" {
				return echo.NewHTTPError(http.StatusBadRequest, "Missing roll number")
			}
			attendance, err := checkAttendance(ctx, s.source, rollNumber, s.maxFetches, s.e.Logger)
			if err != nil {
				return s.upstreamError(err)
			}
			return c.JSON(http.StatusOK, map[string]interface{}{"attendance": attendance})

		case "get":
			if sr.Sheet == "" || rollNumber == "" {
				return echo.NewHTTPError(http.StatusBadRequest, "Missing sheet name or roll number")
			}
			table, err := s.source.Values(ctx, sr.Sheet)
			if err != nil {
				return s.upstreamError(err)
			}
			if len(table) == 0 {
				return echo.NewHTTPError(http.StatusNotFound, "Sheet is empty or not found")
			}
			return c.JSON(http.StatusOK, lookupStudent(table, rollNumber))
		}

		return echo.NewHTTPError(http.StatusBadRequest, `Invalid action. Use "list", "get", or "check-attendance"`)
	}
}

//
// map a spreadsheet failure onto a http error,
// the message is passed through so callers can see
// eg. that the sheet has not been shared
//
func (s *OtfResultsService) upstreamError(err error) error {

	s.e.Logger.Error("google sheets api error: ", err)

	status := http.StatusBadGateway
	switch {
	case errors.Is(err, sheets.ErrAccessDenied):
		status = http.StatusForbidden
	case errors.Is(err, sheets.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	return echo.NewHTTPError(status, err.Error())
}

//
// write all errors as {"error": message}
//
func jsonErrorHandler(err error, c echo.Context) {

	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	} else {
		c.Logger().Error(err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, map[string]string{"error": msg})
	}
	if err != nil {
		c.Logger().Error(err)
	}
}

//
// shut the server down gracefully
//
func (s *OtfResultsService) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.e.Shutdown(ctx); err != nil {
		fmt.Println("could not shut down server cleanly: ", err)
		s.e.Logger.Fatal(err)
	}

}

func (s *OtfResultsService) PrintConfig() {

	fmt.Println("\n\tOTF-Results Service Configuration")
	fmt.Println("\t-----------------------------------")
	fmt.Println()

	s.printID()
	s.printSheetsConfig()

}

func (s *OtfResultsService) printID() {
	fmt.Println("\tservice name:\t\t", s.serviceName)
	fmt.Println("\tservice ID:\t\t", s.serviceID)
	fmt.Println("\tservice host:\t\t", s.serviceHost)
	fmt.Println("\tservice port:\t\t", s.servicePort)
}

func (s *OtfResultsService) printSheetsConfig() {
	fmt.Println("\tspreadsheet id:\t\t", s.sheetsConfig.SpreadsheetID)
	fmt.Println("\tservice account:\t", s.sheetsConfig.ServiceAccountEmail)
	// never display the key itself
	keySet := s.sheetsConfig.PrivateKey != ""
	fmt.Println("\tprivate key set:\t", keySet)
	if s.configErr != nil {
		fmt.Println("\tconfig error:\t\t", s.configErr)
	}
}
