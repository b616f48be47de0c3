//
// Package sheets reads test result tabs from a Google Sheets
// spreadsheet using a service account.
//
package sheets

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/nsip/otf-results/internal/rank"
	"github.com/nsip/otf-results/internal/util"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
)

const (
	defaultBaseURL = "https://sheets.googleapis.com/v4/spreadsheets"
	readOnlyScope  = "https://www.googleapis.com/auth/spreadsheets.readonly"
	// every tab is read across this column range
	columnRange = "A:Z"
)

var (
	ErrNotConfigured = errors.New("google sheets access is not configured")
	ErrMalformedKey  = errors.New("service account private key is malformed")
	ErrAccessDenied  = errors.New("access denied: share the spreadsheet with the service account")
	ErrNotFound      = errors.New("spreadsheet or sheet not found")
	ErrAuthFailed    = errors.New("service account authentication failed")
)

//
// Source is the read-only view of a spreadsheet that
// the results service needs.
//
type Source interface {
	// names of all tabs, in spreadsheet order
	SheetNames(ctx context.Context) ([]string, error)
	// full content of one tab
	Values(ctx context.Context, sheetName string) (rank.Table, error)
}

//
// Config holds the credentials used to reach the spreadsheet.
//
type Config struct {
	SpreadsheetID       string
	ServiceAccountEmail string
	// PEM encoded key, literal "\n" sequences are accepted
	// so the key can be passed in a single-line env var
	PrivateKey string
}

//
// check all required values are present
//
func (c Config) Validate() error {

	var missing []string
	if strings.TrimSpace(c.SpreadsheetID) == "" {
		missing = append(missing, "spreadsheet id")
	}
	if strings.TrimSpace(c.ServiceAccountEmail) == "" {
		missing = append(missing, "service account email")
	}
	if strings.TrimSpace(c.PrivateKey) == "" {
		missing = append(missing, "private key")
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrNotConfigured, "missing %s", strings.Join(missing, ", "))
	}

	return nil
}

func (c Config) privateKey() []byte {
	return []byte(strings.ReplaceAll(c.PrivateKey, `\n`, "\n"))
}

//
// Client reads spreadsheet data via the Sheets v4 REST api
//
type Client struct {
	hc            *http.Client
	baseURL       string
	spreadsheetID string
}

//
// create a client authenticated as the configured service account
//
func New(ctx context.Context, cfg Config) (*Client, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	key := cfg.privateKey()
	if err := checkKey(key); err != nil {
		return nil, err
	}

	jwtCfg := &jwt.Config{
		Email:      cfg.ServiceAccountEmail,
		PrivateKey: key,
		Scopes:     []string{readOnlyScope},
		TokenURL:   google.JWTTokenURL,
	}

	hc := jwtCfg.Client(ctx)
	hc.Timeout = 10 * time.Second

	return newClient(hc, defaultBaseURL, cfg.SpreadsheetID), nil
}

func newClient(hc *http.Client, baseURL string, spreadsheetID string) *Client {
	return &Client{
		hc:            hc,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		spreadsheetID: spreadsheetID,
	}
}

//
// fail early on keys that could never sign a token
//
func checkKey(key []byte) error {

	block, _ := pem.Decode(key)
	if block == nil {
		return errors.Wrap(ErrMalformedKey, "no PEM block found")
	}
	if _, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return nil
	}
	if _, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return nil
	}

	return errors.Wrap(ErrMalformedKey, "not a PKCS8 or PKCS1 key")
}

//
// list the titles of all tabs in the spreadsheet
//
func (c *Client) SheetNames(ctx context.Context) ([]string, error) {

	u := fmt.Sprintf("%s/%s?fields=%s", c.baseURL, url.PathEscape(c.spreadsheetID), url.QueryEscape("sheets.properties.title"))

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, errors.Wrap(err, "cannot list sheets")
	}

	titles := gjson.GetBytes(body, "sheets.#.properties.title").Array()
	names := make([]string, 0, len(titles))
	for _, t := range titles {
		names = append(names, t.String())
	}

	return names, nil
}

//
// fetch every row of the named tab.
// An empty tab returns an empty table, not an error.
//
func (c *Client) Values(ctx context.Context, sheetName string) (rank.Table, error) {

	u := fmt.Sprintf("%s/%s/values/%s?majorDimension=ROWS",
		c.baseURL, url.PathEscape(c.spreadsheetID), url.PathEscape(SheetRange(sheetName)))

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read sheet %q", sheetName)
	}

	var table rank.Table
	gjson.GetBytes(body, "values").ForEach(func(_, row gjson.Result) bool {
		cells := []string{}
		row.ForEach(func(_, cell gjson.Result) bool {
			cells = append(cells, cell.String())
			return true
		})
		table = append(table, cells)
		return true
	})

	return table, nil
}

var plainSheetName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

//
// build the A1 range covering a whole tab,
// names with spaces or punctuation have to be quoted
//
func SheetRange(sheetName string) string {
	if plainSheetName.MatchString(sheetName) {
		return sheetName + "!" + columnRange
	}
	return "'" + strings.ReplaceAll(sheetName, "'", "''") + "'!" + columnRange
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {

	headers := map[string]string{
		"Accept": "application/json",
	}

	body, err := util.Fetch(ctx, c.hc, http.MethodGet, u, headers, nil)
	if err != nil {
		return nil, classify(err)
	}

	return body, nil
}

//
// APIError is an upstream failure with no more specific meaning
//
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("google sheets api error (status %d)", e.Status)
	}
	return fmt.Sprintf("google sheets api error (status %d): %s", e.Status, e.Message)
}

//
// map transport and api failures onto the package errors
//
func classify(err error) error {

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return errors.Wrap(ErrAuthFailed, re.Error())
	}

	var se *util.StatusError
	if !errors.As(err, &se) {
		return errors.Wrap(err, "cannot reach google sheets")
	}

	msg := gjson.GetBytes(se.Body, "error.message").String()

	switch {
	case se.StatusCode == http.StatusForbidden:
		return withMessage(ErrAccessDenied, msg)
	case se.StatusCode == http.StatusNotFound:
		return withMessage(ErrNotFound, msg)
	case se.StatusCode == http.StatusBadRequest && strings.Contains(msg, "Unable to parse range"):
		return withMessage(ErrNotFound, msg)
	case se.StatusCode == http.StatusUnauthorized:
		return withMessage(ErrAuthFailed, msg)
	}

	return &APIError{Status: se.StatusCode, Message: msg}
}

func withMessage(err error, msg string) error {
	if msg == "" {
		return err
	}
	return errors.Wrap(err, msg)
}
