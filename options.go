package otfresults

import (
	"github.com/nsip/otf-results/internal/sheets"
	"github.com/nsip/otf-results/internal/util"
	"github.com/pkg/errors"
)

type Option func(*OtfResultsService) error

//
// apply all supplied options to the service
// returns any error encountered while applying the options
//
func (srvc *OtfResultsService) setOptions(options ...Option) error {
	for _, opt := range options {
		if err := opt(srvc); err != nil {
			return err
		}
	}
	return nil
}

//
// human-readable name for this service instance,
// a short unique name is generated if none supplied
//
func Name(name string) Option {
	return func(s *OtfResultsService) error {
		if name != "" {
			s.serviceName = name
			return nil
		}
		s.serviceName = util.GenerateName()
		return nil
	}
}

//
// unique id for this service instance,
// generated if none supplied
//
func ID(id string) Option {
	return func(s *OtfResultsService) error {
		if id != "" {
			s.serviceID = id
			return nil
		}
		s.serviceID = util.GenerateID()
		return nil
	}
}

//
// host name or address the service binds to
//
func Host(hostName string) Option {
	return func(s *OtfResultsService) error {
		if hostName == "" {
			return errors.New("host cannot be blank")
		}
		s.serviceHost = hostName
		return nil
	}
}

//
// port the service runs on,
// if 0 an available port is found automatically
//
func Port(port int) Option {
	return func(s *OtfResultsService) error {
		if port != 0 {
			s.servicePort = port
			return nil
		}
		p, err := util.AvailablePort()
		if err != nil {
			return err
		}
		s.servicePort = p
		return nil
	}
}

//
// credentials for the spreadsheet holding the results.
// Incomplete credentials do not stop the service starting,
// requests are answered with a configuration error instead.
//
func Sheets(cfg sheets.Config) Option {
	return func(s *OtfResultsService) error {
		s.sheetsConfig = cfg
		return nil
	}
}

//
// use the given source for spreadsheet data rather than
// connecting to google, takes precedence over Sheets()
//
func Source(src sheets.Source) Option {
	return func(s *OtfResultsService) error {
		if src == nil {
			return errors.New("source cannot be nil")
		}
		s.source = src
		return nil
	}
}

//
// upper bound on tabs fetched at once when checking attendance
//
func MaxConcurrentFetches(n int) Option {
	return func(s *OtfResultsService) error {
		if n < 1 {
			return errors.Errorf("max concurrent fetches must be at least 1, got %d", n)
		}
		s.maxFetches = n
		return nil
	}
}
