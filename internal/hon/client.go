package hon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pgrootkop-cmyk/honairco/internal/auth"
	"github.com/pgrootkop-cmyk/honairco/internal/rate"
)

const (
	defaultBaseURL = "https://api-iot.he.services"

	// AppVersion is the mobile app version impersonated on the wire; the
	// token exchange and command envelopes carry the same value.
	AppVersion = "2.0.10"

	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// Client talks to the hOn device API. Every call goes through the shared
// session: ensure credentials, execute, and on an authorization failure
// refresh once and retry exactly once.
type Client struct {
	baseURL    string
	session    *auth.Session
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(baseURL string, session *auth.Session, log *zap.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		httpClient: rate.WrapHTTP("hon", rate.Limit{PerMinute: 120, Burst: 30},
			&http.Client{Timeout: 15 * time.Second}),
		log: log,
	}
}

// Appliances lists the account's air conditioners with canonical MACs.
func (c *Client) Appliances(ctx context.Context) ([]Appliance, error) {
	var resp struct {
		Payload struct {
			Appliances []applianceEntry `json:"appliances"`
		} `json:"payload"`
	}
	if err := c.getJSON(ctx, "/commands/v1/appliance", nil, &resp); err != nil {
		return nil, err
	}

	appliances := make([]Appliance, 0, len(resp.Payload.Appliances))
	for _, entry := range resp.Payload.Appliances {
		if entry.ApplianceTypeName != "AC" {
			continue
		}
		appliances = append(appliances, entry.toAppliance())
	}
	return appliances, nil
}

// CommandSchema fetches and resolves the per-appliance command parameter
// schema into mandatory and ancillary sets.
func (c *Client) CommandSchema(ctx context.Context, app Appliance) (CommandDefinition, error) {
	query := url.Values{}
	query.Set("applianceType", app.ApplianceType)
	query.Set("applianceModelId", strconv.FormatInt(app.ModelID, 10))
	query.Set("macAddress", app.MacAddress)
	query.Set("firmwareId", app.FirmwareID)
	query.Set("series", app.Series)
	query.Set("os", "android")
	query.Set("appVersion", AppVersion)

	var resp struct {
		Payload struct {
			Parameters map[string]schemaParameter `json:"parameters"`
		} `json:"payload"`
	}
	if err := c.getJSON(ctx, "/commands/v1/retrieve", query, &resp); err != nil {
		return CommandDefinition{}, err
	}
	if len(resp.Payload.Parameters) == 0 {
		return CommandDefinition{}, fmt.Errorf("empty command schema for %s", app.MacAddress)
	}
	return resolveSchema(resp.Payload.Parameters), nil
}

// Context fetches the appliance's current shadow state.
func (c *Client) Context(ctx context.Context, mac string) (DeviceState, error) {
	query := url.Values{}
	query.Set("macAddress", CanonicalMAC(mac))
	query.Set("applianceType", "AC")
	query.Set("category", "CYCLE")

	var resp struct {
		Payload struct {
			ShadowState struct {
				Parameters DeviceState `json:"parameters"`
			} `json:"shadow"`
		} `json:"payload"`
	}
	if err := c.getJSON(ctx, "/commands/v1/context", query, &resp); err != nil {
		return nil, err
	}
	return resp.Payload.ShadowState.Parameters, nil
}

// SendCommand posts one command envelope. The wire command is full state:
// the request's parameter map must already contain every mandatory field.
func (c *Client) SendCommand(ctx context.Context, app Appliance, cmd CommandRequest) error {
	now := time.Now().UTC().Format(timestampLayout)
	envelope := commandEnvelope{
		MacAddress:       app.MacAddress,
		Timestamp:        now,
		CommandName:      cmd.CommandName,
		TransactionID:    transactionID(app.MacAddress, now),
		ProgramName:      cmd.ProgramName,
		ApplianceOptions: map[string]any{},
		Device: deviceBlock{
			AppVersion:  AppVersion,
			MobileID:    c.session.MobileID(),
			MobileOs:    "android",
			OsVersion:   "11",
			DeviceModel: "honairco",
		},
		Attributes: attributesBlock{
			Channel:     "mobileApp",
			Origin:      "standardProgram",
			EnergyLabel: "0",
		},
		AncillaryParameters: cmd.Ancillary,
		Parameters:          cmd.Parameters,
		ApplianceType:       app.ApplianceType,
	}

	var resp struct {
		Payload struct {
			ResultCode string `json:"resultCode"`
		} `json:"payload"`
	}
	if err := c.postJSON(ctx, "/commands/v1/send", envelope, &resp); err != nil {
		return err
	}
	if resp.Payload.ResultCode != "" && resp.Payload.ResultCode != "0" {
		return fmt.Errorf("command rejected with result code %s", resp.Payload.ResultCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.doJSON(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	if err := c.session.EnsureAuthenticated(ctx); err != nil {
		return err
	}

	resp, err := c.execute(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	if isAuthStatus(resp.StatusCode) {
		resp.Body.Close()
		c.log.Info("api rejected credentials, refreshing once", zap.String("path", path), zap.Int("status", resp.StatusCode))
		if err := c.session.Refresh(ctx); err != nil {
			return err
		}
		resp, err = c.execute(ctx, method, path, query, body)
		if err != nil {
			return err
		}
		if isAuthStatus(resp.StatusCode) {
			data, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			c.session.MarkFailed()
			return auth.AuthError{Op: "api", Err: APIError{Status: resp.StatusCode, Body: string(data)}}
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return APIError{Status: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) execute(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Response, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	creds := c.session.Credentials()
	req.Header.Set("cognito-token", creds.ExchangeToken)
	req.Header.Set("id-token", creds.IDToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiRequests.WithLabelValues(path, "error").Inc()
		return nil, NetworkError{Err: err}
	}
	apiRequests.WithLabelValues(path, statusClass(resp.StatusCode)).Inc()
	return resp, nil
}

func isAuthStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
