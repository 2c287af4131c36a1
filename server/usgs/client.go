// Package usgs looks up the latest readings of active USGS monitoring
// stations near a coordinate via the NWIS instantaneous values service.
package usgs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/san-kum/aquascan/server/config"
	"github.com/san-kum/aquascan/server/models"
	"go.uber.org/zap"
)

const Source = "USGS Water Services"

// NWIS parameter codes requested for every lookup.
const (
	ParamWaterTemperature    = "00010"
	ParamPH                  = "00400"
	ParamTurbidity           = "63680"
	ParamSpecificConductance = "00095"
	ParamDissolvedOxygen     = "00300"
)

var ParameterCodes = []string{
	ParamWaterTemperature,
	ParamPH,
	ParamTurbidity,
	ParamSpecificConductance,
	ParamDissolvedOxygen,
}

// ErrNoCoordinates is returned when either coordinate is zero. A zero
// latitude or longitude is treated as absent.
var ErrNoCoordinates = errors.New("coordinates not provided")

type Client struct {
	baseURL    string
	boxWidth   float64
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// Lookup is the outcome of a station query. Reading is nil when no station
// data is available; Err explains why when the cause was a failure.
type Lookup struct {
	Reading *models.SensorReading
	Err     error
}

func (l Lookup) Found() bool {
	return l.Reading != nil
}

type ivResponse struct {
	Value struct {
		TimeSeries []timeSeries `json:"timeSeries"`
	} `json:"value"`
}

type timeSeries struct {
	SourceInfo struct {
		SiteName string `json:"siteName"`
		SiteCode []struct {
			Value string `json:"value"`
		} `json:"siteCode"`
	} `json:"sourceInfo"`
	Variable struct {
		VariableName string `json:"variableName"`
		Unit         struct {
			UnitCode string `json:"unitCode"`
		} `json:"unit"`
	} `json:"variable"`
	Values []struct {
		Value []struct {
			Value    string `json:"value"`
			DateTime string `json:"dateTime"`
		} `json:"value"`
	} `json:"values"`
}

func NewClient(cfg config.USGSConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		boxWidth: cfg.BoxWidth,
		timeout:  cfg.Timeout,
		logger:   logger,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Fetch queries stations inside a small bounding box around the point.
// It never fails the caller: every problem yields a Lookup without a reading.
func (c *Client) Fetch(ctx context.Context, lat, lon float64) Lookup {
	if lat == 0 || lon == 0 {
		return Lookup{Err: ErrNoCoordinates}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reading, err := c.fetch(ctx, lat, lon)
	if err != nil {
		c.logger.Warn("USGS lookup failed",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Error(err))
		return Lookup{Err: err}
	}

	if reading == nil {
		c.logger.Debug("No USGS station data near point",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon))
	}

	return Lookup{Reading: reading}
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) (*models.SensorReading, error) {
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodGet, c.queryURL(lat, lon), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpRequest.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return nil, fmt.Errorf("USGS API error (status %d): %s", response.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var payload ivResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return toReading(payload.Value.TimeSeries), nil
}

// queryURL builds the bBox query; NWIS expects west,south,east,north.
func (c *Client) queryURL(lat, lon float64) string {
	bbox := fmt.Sprintf("%.4f,%.4f,%.4f,%.4f",
		lon-c.boxWidth, lat-c.boxWidth, lon+c.boxWidth, lat+c.boxWidth)

	q := url.Values{}
	q.Set("format", "json")
	q.Set("bBox", bbox)
	q.Set("parameterCd", strings.Join(ParameterCodes, ","))
	q.Set("siteStatus", "active")

	sep := "?"
	if strings.Contains(c.baseURL, "?") {
		sep = "&"
	}
	return c.baseURL + sep + q.Encode()
}

// toReading flattens the series into one reading. Station identity comes
// from the last series seen; each parameter keeps its latest value.
func toReading(series []timeSeries) *models.SensorReading {
	if len(series) == 0 {
		return nil
	}

	reading := &models.SensorReading{
		Source:      Source,
		StationName: "Unknown Station",
		Parameters:  make(map[string]string),
	}

	for _, ts := range series {
		reading.StationName = ts.SourceInfo.SiteName
		reading.StationID = ""
		if len(ts.SourceInfo.SiteCode) > 0 {
			reading.StationID = ts.SourceInfo.SiteCode[0].Value
		}

		name := strings.TrimSpace(strings.SplitN(ts.Variable.VariableName, ",", 2)[0])
		if name == "" || len(ts.Values) == 0 {
			continue
		}

		values := ts.Values[0].Value
		if len(values) == 0 {
			continue
		}

		latest := values[len(values)-1].Value
		reading.Parameters[name] = strings.TrimSpace(latest + " " + ts.Variable.Unit.UnitCode)
	}

	if len(reading.Parameters) == 0 {
		return nil
	}

	return reading
}
