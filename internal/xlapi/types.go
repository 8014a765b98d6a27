package xlapi

import "encoding/json"

const statusSuccess = "SUCCESS"

// envelope wraps every partner response body.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

// reason picks the most specific failure marker the partner sent.
func (e envelope) reason() string {
	for _, s := range []string{e.Code, e.Message, e.Status} {
		if s != "" && s != statusSuccess {
			return s
		}
	}
	return ""
}

type otpRequest struct {
	MSISDN string `json:"msisdn"`
}

type otpRequestData struct {
	SubscriberID string `json:"subscriber_id"`
}

type otpVerifyRequest struct {
	MSISDN string `json:"msisdn"`
	OTP    string `json:"otp"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenData struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
}

type profileRequest struct {
	AccessToken  string `json:"access_token"`
	AppVersion   string `json:"app_version"`
	IsEnterprise bool   `json:"is_enterprise"`
	Lang         string `json:"lang"`
}

type profileData struct {
	Profile struct {
		MSISDN           string `json:"msisdn"`
		SubscriberID     string `json:"subscriber_id"`
		SubscriptionType string `json:"subscription_type"`
	} `json:"profile"`
}

type commonRequest struct {
	IsEnterprise   bool   `json:"is_enterprise"`
	Lang           string `json:"lang"`
	FamilyMemberID string `json:"family_member_id,omitempty"`
}

type balanceData struct {
	Balance struct {
		Remaining int64 `json:"remaining"`
		ExpiredAt int64 `json:"expired_at"`
	} `json:"balance"`
}

type quotaData struct {
	Quotas []struct {
		Name      string `json:"name"`
		Remaining int64  `json:"remaining"`
		Total     int64  `json:"total"`
	} `json:"quotas"`
}

type familyRequest struct {
	PackageFamilyCode string `json:"package_family_code"`
	IsEnterprise      bool   `json:"is_enterprise"`
	MigrationType     string `json:"migration_type"`
	Lang              string `json:"lang"`
}

type familyData struct {
	PackageVariants []struct {
		Name           string `json:"name"`
		PackageOptions []struct {
			PackageOptionCode string `json:"package_option_code"`
			Name              string `json:"name"`
			Price             int64  `json:"price"`
		} `json:"package_options"`
	} `json:"package_variants"`
}

type optionRequest struct {
	PackageOptionCode string `json:"package_option_code"`
	IsEnterprise      bool   `json:"is_enterprise"`
	Lang              string `json:"lang"`
}

type optionData struct {
	PackageFamily struct {
		Name string `json:"name"`
	} `json:"package_family"`
	PackageDetailVariant struct {
		Name string `json:"name"`
	} `json:"package_detail_variant"`
	PackageOption struct {
		PackageOptionCode string `json:"package_option_code"`
		Name              string `json:"name"`
		Price             int64  `json:"price"`
		Validity          string `json:"validity"`
	} `json:"package_option"`
}

type purchaseRequest struct {
	PackageOptionCode string `json:"package_option_code"`
	PaymentMethod     string `json:"payment_method"`
	Lang              string `json:"lang"`
}
