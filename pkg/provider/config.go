package provider

// Vendor credentials load from the environment. Tokens are optional so that
// development environments can run with a subset of providers; a provider
// with missing credentials reports IsAvailable() == false and dispatchers
// leave it out of the fallback chain.

// PostmarkConfig configures the Postmark email provider.
type PostmarkConfig struct {
	ServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	AccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail  string `env:"POSTMARK_SENDER_EMAIL"`
	ReplyTo      string `env:"POSTMARK_REPLY_TO"`
}

// SendGridConfig configures the SendGrid email provider.
type SendGridConfig struct {
	APIKey      string `env:"SENDGRID_API_KEY"`
	SenderEmail string `env:"SENDGRID_SENDER_EMAIL"`
	SenderName  string `env:"SENDGRID_SENDER_NAME" envDefault:"Herald"`
}

// SESConfig configures the Amazon SES email provider. Credentials resolve
// through the standard AWS chain (env, shared config, instance role).
type SESConfig struct {
	Region      string `env:"AWS_SES_REGION"`
	SenderEmail string `env:"AWS_SES_SENDER_EMAIL"`
}

// TwilioConfig configures the Twilio SMS provider.
type TwilioConfig struct {
	AccountSID string `env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	FromNumber string `env:"TWILIO_FROM_NUMBER"`
}

// FCMConfig configures the Firebase Cloud Messaging push provider.
type FCMConfig struct {
	CredentialsFile string `env:"FCM_CREDENTIALS_FILE"`
}

// APNsConfig configures the Apple Push Notification service provider using
// token-based authentication.
type APNsConfig struct {
	KeyFile     string `env:"APNS_KEY_FILE"`
	KeyID       string `env:"APNS_KEY_ID"`
	TeamID      string `env:"APNS_TEAM_ID"`
	Topic       string `env:"APNS_TOPIC"`
	Development bool   `env:"APNS_DEVELOPMENT" envDefault:"false"`
}

// OneSignalConfig configures the OneSignal push provider.
type OneSignalConfig struct {
	AppID      string `env:"ONESIGNAL_APP_ID"`
	RESTAPIKey string `env:"ONESIGNAL_REST_API_KEY"`
	BaseURL    string `env:"ONESIGNAL_BASE_URL" envDefault:"https://api.onesignal.com"`
}
