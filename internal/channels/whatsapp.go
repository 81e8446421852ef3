package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "studio-notifier/internal/common/errors"
	commonhttp "studio-notifier/internal/common/http"
	"studio-notifier/internal/common/logger"
	"studio-notifier/internal/models"
)

const (
	ModeTemplate = "template"
	ModeFreeform = "freeform"
)

type WhatsAppConfig struct {
	Enabled     bool
	BaseURL     string
	AccountSID  string
	AuthToken   string
	From        string
	Mode        string
	ContentSIDs map[string]string
	CountryCode string
	MaxRetries  int
	Timeout     time.Duration
}

// WhatsAppChannel posts messages to a Twilio-compatible Messages API.
type WhatsAppChannel struct {
	config WhatsAppConfig
	http   *commonhttp.Client
	logger logger.Logger
}

type messageResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	Message      string `json:"message"`
}

func NewWhatsAppChannel(config WhatsAppConfig, log logger.Logger) *WhatsAppChannel {
	return &WhatsAppChannel{
		config: config,
		http: commonhttp.NewClient(commonhttp.Config{
			Timeout:    config.Timeout,
			MaxRetries: config.MaxRetries,
		}),
		logger: log.WithFields(map[string]interface{}{"channel": ChannelWhatsApp}),
	}
}

func (c *WhatsAppChannel) Name() string { return ChannelWhatsApp }

func (c *WhatsAppChannel) IsConfigured() bool {
	return c.config.Enabled &&
		c.config.BaseURL != "" &&
		c.config.AccountSID != "" &&
		c.config.AuthToken != "" &&
		c.config.From != ""
}

func (c *WhatsAppChannel) RenderTemplate(n models.Notification) Rendered {
	return Render(n)
}

func (c *WhatsAppChannel) Send(ctx context.Context, recipient models.Recipient, n models.Notification) Result {
	if !c.IsConfigured() {
		return failure(apperrors.NewChannelNotConfiguredError(ChannelWhatsApp))
	}
	to, err := NormalizePhone(recipient.Phone, c.config.CountryCode)
	if err != nil {
		return failure(apperrors.NewChannelDeliveryFailedError(ChannelWhatsApp, fmt.Errorf("%w: %q", err, recipient.Phone)))
	}

	form, err := c.buildForm(to, n)
	if err != nil {
		return failure(apperrors.NewChannelDeliveryFailedError(ChannelWhatsApp, err))
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json",
		strings.TrimRight(c.config.BaseURL, "/"), url.PathEscape(c.config.AccountSID))
	encoded := form.Encode()

	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.config.AccountSID, c.config.AuthToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		c.logger.Error("whatsapp send failed", map[string]interface{}{"error": err, "notificationType": n.Type})
		return failure(apperrors.NewChannelDeliveryFailedError(ChannelWhatsApp, err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var parsed messageResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode >= http.StatusBadRequest || parsed.SID == "" {
		reason := parsed.Message
		if reason == "" {
			reason = parsed.ErrorMessage
		}
		if reason == "" {
			reason = strings.TrimSpace(string(body))
		}
		err := fmt.Errorf("provider rejected message (status %d): %s", resp.StatusCode, reason)
		c.logger.Warn("whatsapp message rejected", map[string]interface{}{
			"status":           resp.StatusCode,
			"notificationType": n.Type,
		})
		return failure(apperrors.NewChannelDeliveryFailedError(ChannelWhatsApp, err))
	}

	return Result{Success: true, ExternalID: parsed.SID}
}

// buildForm selects the content template for n.Type in template mode and
// falls back to a freeform body when none is mapped.
func (c *WhatsAppChannel) buildForm(to string, n models.Notification) (url.Values, error) {
	form := url.Values{}
	form.Set("To", "whatsapp:"+to)
	from := c.config.From
	if !strings.HasPrefix(from, "whatsapp:") {
		from = "whatsapp:" + from
	}
	form.Set("From", from)

	msg := c.RenderTemplate(n)

	if c.config.Mode == ModeTemplate {
		if sid := c.config.ContentSIDs[n.Type]; sid != "" {
			vars := make(map[string]string, len(msg.Variables))
			for i, v := range msg.Variables {
				vars[strconv.Itoa(i+1)] = v
			}
			raw, err := json.Marshal(vars)
			if err != nil {
				return nil, fmt.Errorf("encode content variables: %w", err)
			}
			form.Set("ContentSid", sid)
			form.Set("ContentVariables", string(raw))
			return form, nil
		}
		c.logger.Debug("no content template mapped, sending freeform", map[string]interface{}{"notificationType": n.Type})
	}

	form.Set("Body", msg.Subject+"\n\n"+msg.Text)
	return form, nil
}
