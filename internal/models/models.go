// Package models holds the records shared between the partner API client and the conversation flow.
package models

import "time"

// TokenSet is issued by OTP verification and by every refresh. Always replaced as a whole.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
}

// Valid reports whether the set carries the tokens protected calls need.
func (t TokenSet) Valid() bool {
	return t.IDToken != "" && t.RefreshToken != ""
}

type Profile struct {
	MSISDN           string `json:"msisdn"`
	SubscriberID     string `json:"subscriber_id"`
	SubscriptionType string `json:"subscription_type"`
}

type Balance struct {
	Remaining int64
	ExpiredAt time.Time
}

type Quota struct {
	Name      string
	Remaining int64
	Total     int64
}

// PackageSummary is one catalog entry. OptionCode is the opaque backend id;
// DisplayCode is assigned per listing and never sent to the API.
type PackageSummary struct {
	DisplayCode string
	OptionCode  string
	Name        string
	Price       int64
}

// PackageDetail is the detail view of one package option.
type PackageDetail struct {
	OptionCode  string
	FamilyName  string
	VariantName string
	OptionName  string
	Price       int64
	Validity    string
}

// Title joins the family, variant and option names, skipping empty parts.
func (d PackageDetail) Title() string {
	title := ""
	for _, part := range []string{d.FamilyName, d.VariantName, d.OptionName} {
		if part == "" {
			continue
		}
		if title != "" {
			title += " "
		}
		title += part
	}
	return title
}

const (
	PurchaseSuccess = "SUCCESS"
	PurchaseFailed  = "FAILED"

	// ReasonBalanceInsufficient is the one failure reason with a dedicated user message.
	ReasonBalanceInsufficient = "BALANCE_INSUFFICIENT"
)

// PurchaseResult is the outcome reported by the purchase endpoint.
type PurchaseResult struct {
	Status     string
	ReasonCode string
}

func (r PurchaseResult) Succeeded() bool {
	return r.Status == PurchaseSuccess
}
