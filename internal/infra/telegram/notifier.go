package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"classroom-quiz-service/internal/domain"
)

const defaultBaseURL = "https://api.telegram.org"

var medals = []string{"🥇", "🥈", "🥉"}

// Notifier sends quiz results through the Telegram Bot API.
type Notifier struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// New returns nil when no bot token is configured.
func New(token, baseURL string, timeout time.Duration) *Notifier {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendQuizResults posts the results summary to the chat identified by target.
func (n *Notifier) SendQuizResults(ctx context.Context, target, quizTitle string, participantCount int, topThree []domain.LeaderboardEntry) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    target,
		Text:      FormatResults(quizTitle, participantCount, topThree),
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	var apiResp apiResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return fmt.Errorf("unmarshal (status %d): %w", resp.StatusCode, err)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram: %s", apiResp.Description)
	}
	return nil
}

// FormatResults renders the HTML message body.
func FormatResults(quizTitle string, participantCount int, topThree []domain.LeaderboardEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏁 <b>Quiz completed: %s</b>\n\n", html.EscapeString(quizTitle))
	fmt.Fprintf(&b, "👥 Participants: %d\n\n", participantCount)

	if len(topThree) == 0 {
		b.WriteString("No participants took part in this quiz.")
		return b.String()
	}

	b.WriteString("<b>Top players</b>\n")
	for i, entry := range topThree {
		if i >= len(medals) {
			break
		}
		fmt.Fprintf(&b, "%s %s: %d\n", medals[i], html.EscapeString(entry.DisplayName), entry.Score)
	}
	return strings.TrimRight(b.String(), "\n")
}
