// Package xlapi is a JSON-over-HTTP client for the MyXL partner account API.
package xlapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/m3rciful/xlbot/core/logger"
	"github.com/m3rciful/xlbot/core/netutil"
	"github.com/m3rciful/xlbot/internal/models"
)

const (
	pathOTPRequest    = "/auth/otp/request"
	pathOTPVerify     = "/auth/otp/verify"
	pathTokenRefresh  = "/auth/token/refresh"
	pathProfile       = "/api/v8/profile"
	pathBalance       = "/api/v8/packages/balance-and-credit"
	pathQuota         = "/api/v8/packages/quota-details"
	pathFamilyOptions = "/api/v8/xl-stores/options/list"
	pathOptionDetail  = "/api/v8/xl-stores/options/detail"
	pathPurchase      = "/payments/api/v8/settlement-balance"

	defaultTimeout    = 20 * time.Second
	defaultLang       = "en"
	defaultAppVersion = "8.6.0"
	maxErrorBody      = 512
)

// Config holds partner API settings.
type Config struct {
	BaseURL       string        `yaml:"base_url" envconfig:"XL_BASE_URL"`
	APIKey        string        `yaml:"api_key" envconfig:"MYXL_API_KEY"`
	PackageFamily string        `yaml:"package_family" envconfig:"XL_PACKAGE_FAMILY"`
	Timeout       time.Duration `yaml:"timeout" envconfig:"XL_TIMEOUT"`
	MaxRetries    int           `yaml:"max_retries" envconfig:"XL_MAX_RETRIES"`
	// ResponseHeaderTimeout bounds the wait for response headers.
	// Zero means Timeout, so a slow purchase is not cut short.
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout" envconfig:"XL_RESPONSE_HEADER_TIMEOUT"`
}

// Client talks to the partner API. Read operations are marked retryable for
// the netutil transport; OTP, verification, refresh and purchase are sent once.
type Client struct {
	baseURL string
	apiKey  string
	family  string
	http    *http.Client
}

// New returns a client. A nil httpClient gets netutil.BuildHTTPClient defaults.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		header := cfg.ResponseHeaderTimeout
		if header <= 0 || header > timeout {
			header = timeout
		}
		httpClient = netutil.BuildHTTPClient(netutil.ClientOptions{
			Timeout:        timeout,
			ResponseHeader: header,
			MaxRetries:     cfg.MaxRetries,
		})
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		family:  cfg.PackageFamily,
		http:    httpClient,
	}
}

// call posts body to path and decodes the envelope's data into out.
// bearer is the id token for protected endpoints, empty otherwise.
func (c *Client) call(ctx context.Context, op, path, bearer string, body, out any) (envelope, error) {
	var env envelope
	payload, err := json.Marshal(body)
	if err != nil {
		return env, newError(op, ErrCodeRequest, "failed to marshal request", 0, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return env, newError(op, ErrCodeRequest, "failed to create request", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logCall(ctx, op, 0, time.Since(start), err)
		return env, newError(op, ErrCodeRequest, "failed to send request", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		e := newError(op, ErrCodeStatus, strings.TrimSpace(string(raw)), resp.StatusCode, nil)
		// Partner errors usually still come as an envelope.
		if json.Unmarshal(raw, &env) == nil && env.reason() != "" {
			e.Reason, e.Message = env.reason(), env.Message
		}
		c.logCall(ctx, op, resp.StatusCode, time.Since(start), e)
		return env, e
	}

	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		e := newError(op, ErrCodeDecode, "failed to decode response", resp.StatusCode, err)
		c.logCall(ctx, op, resp.StatusCode, time.Since(start), e)
		return env, e
	}
	c.logCall(ctx, op, resp.StatusCode, time.Since(start), nil)

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env, newError(op, ErrCodeDecode, "failed to decode data", resp.StatusCode, err)
		}
	}
	return env, nil
}

// callOK is call plus the requirement that the envelope reports SUCCESS.
func (c *Client) callOK(ctx context.Context, op, path, bearer string, body, out any) error {
	env, err := c.call(ctx, op, path, bearer, body, out)
	if err != nil {
		return err
	}
	if env.Status != statusSuccess {
		return newError(op, env.reason(), env.Message, 0, nil)
	}
	return nil
}

func (c *Client) logCall(ctx context.Context, op string, status int, took time.Duration, err error) {
	attrs := []slog.Attr{
		slog.String("action", op),
		slog.Int("http_status", status),
		slog.Duration("duration", took),
	}
	if err != nil {
		attrs = append(attrs, slog.String("status", "fail"), slog.String("err", err.Error()))
		logger.Warn(ctx, "xlapi", "xlapi.call", attrs...)
		return
	}
	logger.Debug(ctx, "xlapi", "xlapi.call", append(attrs, slog.String("status", "ok"))...)
}

func tokenSet(d tokenData) models.TokenSet {
	return models.TokenSet{AccessToken: d.AccessToken, IDToken: d.IDToken, RefreshToken: d.RefreshToken}
}

// RequestOTP asks the partner to text an OTP to phone and returns the subscriber handle.
func (c *Client) RequestOTP(ctx context.Context, phone string) (string, error) {
	var data otpRequestData
	if err := c.callOK(ctx, "request_otp", pathOTPRequest, "", otpRequest{MSISDN: phone}, &data); err != nil {
		return "", err
	}
	if data.SubscriberID == "" {
		return "", newError("request_otp", ErrCodeRejected, "no subscriber id", 0, nil)
	}
	return data.SubscriberID, nil
}

// VerifyOTP exchanges phone and code for a token set.
func (c *Client) VerifyOTP(ctx context.Context, phone, code string) (models.TokenSet, error) {
	var data tokenData
	if err := c.callOK(ctx, "verify_otp", pathOTPVerify, "", otpVerifyRequest{MSISDN: phone, OTP: code}, &data); err != nil {
		return models.TokenSet{}, err
	}
	ts := tokenSet(data)
	if !ts.Valid() {
		return models.TokenSet{}, newError("verify_otp", ErrCodeRejected, "incomplete token set", 0, nil)
	}
	return ts, nil
}

// RefreshTokens implements auth.Refresher.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (models.TokenSet, error) {
	var data tokenData
	if err := c.callOK(ctx, "refresh_tokens", pathTokenRefresh, "", refreshRequest{RefreshToken: refreshToken}, &data); err != nil {
		return models.TokenSet{}, err
	}
	return tokenSet(data), nil
}

func (c *Client) Profile(ctx context.Context, tokens models.TokenSet) (models.Profile, error) {
	var data profileData
	req := profileRequest{AccessToken: tokens.AccessToken, AppVersion: defaultAppVersion, Lang: defaultLang}
	if err := c.callOK(netutil.Retryable(ctx), "profile", pathProfile, tokens.IDToken, req, &data); err != nil {
		return models.Profile{}, err
	}
	return models.Profile{
		MSISDN:           data.Profile.MSISDN,
		SubscriberID:     data.Profile.SubscriberID,
		SubscriptionType: data.Profile.SubscriptionType,
	}, nil
}

func (c *Client) Balance(ctx context.Context, tokens models.TokenSet) (models.Balance, error) {
	var data balanceData
	if err := c.callOK(netutil.Retryable(ctx), "balance", pathBalance, tokens.IDToken, commonRequest{Lang: defaultLang}, &data); err != nil {
		return models.Balance{}, err
	}
	b := models.Balance{Remaining: data.Balance.Remaining}
	if data.Balance.ExpiredAt > 0 {
		b.ExpiredAt = time.Unix(data.Balance.ExpiredAt, 0)
	}
	return b, nil
}

func (c *Client) QuotaDetails(ctx context.Context, tokens models.TokenSet) ([]models.Quota, error) {
	var data quotaData
	if err := c.callOK(netutil.Retryable(ctx), "quota_details", pathQuota, tokens.IDToken, commonRequest{Lang: defaultLang}, &data); err != nil {
		return nil, err
	}
	quotas := make([]models.Quota, 0, len(data.Quotas))
	for _, q := range data.Quotas {
		quotas = append(quotas, models.Quota{Name: q.Name, Remaining: q.Remaining, Total: q.Total})
	}
	return quotas, nil
}

// ListPackages returns the options of the configured package family, flattened across variants.
// DisplayCode is left empty for the caller to assign.
func (c *Client) ListPackages(ctx context.Context, tokens models.TokenSet) ([]models.PackageSummary, error) {
	var data familyData
	req := familyRequest{PackageFamilyCode: c.family, MigrationType: "NONE", Lang: defaultLang}
	if err := c.callOK(netutil.Retryable(ctx), "list_packages", pathFamilyOptions, tokens.IDToken, req, &data); err != nil {
		return nil, err
	}
	var out []models.PackageSummary
	for _, v := range data.PackageVariants {
		for _, o := range v.PackageOptions {
			if o.PackageOptionCode == "" {
				continue
			}
			out = append(out, models.PackageSummary{OptionCode: o.PackageOptionCode, Name: o.Name, Price: o.Price})
		}
	}
	return out, nil
}

func (c *Client) PackageDetail(ctx context.Context, tokens models.TokenSet, optionCode string) (models.PackageDetail, error) {
	var data optionData
	req := optionRequest{PackageOptionCode: optionCode, Lang: defaultLang}
	if err := c.callOK(netutil.Retryable(ctx), "package_detail", pathOptionDetail, tokens.IDToken, req, &data); err != nil {
		return models.PackageDetail{}, err
	}
	return models.PackageDetail{
		OptionCode:  optionCode,
		FamilyName:  data.PackageFamily.Name,
		VariantName: data.PackageDetailVariant.Name,
		OptionName:  data.PackageOption.Name,
		Price:       data.PackageOption.Price,
		Validity:    data.PackageOption.Validity,
	}, nil
}

// Purchase buys optionCode with the subscriber's balance. A rejection by the
// partner is a FAILED result carrying the reason code, not an error; errors
// mean the outcome is unknown (transport or protocol failure).
func (c *Client) Purchase(ctx context.Context, tokens models.TokenSet, optionCode string) (models.PurchaseResult, error) {
	req := purchaseRequest{PackageOptionCode: optionCode, PaymentMethod: "BALANCE", Lang: defaultLang}
	env, err := c.call(ctx, "purchase", pathPurchase, tokens.IDToken, req, nil)
	if err != nil {
		var xe *Error
		if errors.As(err, &xe) && xe.Status >= 400 && xe.Status < 500 && xe.Reason != ErrCodeStatus {
			return models.PurchaseResult{Status: models.PurchaseFailed, ReasonCode: xe.Reason}, nil
		}
		return models.PurchaseResult{}, err
	}
	if env.Status == statusSuccess {
		return models.PurchaseResult{Status: models.PurchaseSuccess}, nil
	}
	return models.PurchaseResult{Status: models.PurchaseFailed, ReasonCode: env.reason()}, nil
}

// String is used in startup logs.
func (c *Client) String() string {
	return fmt.Sprintf("xlapi(%s, family=%s)", c.baseURL, c.family)
}
