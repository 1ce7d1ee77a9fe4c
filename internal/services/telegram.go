package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/example/atelier/internal/models"
)

// TelegramService sends admin notifications to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
	client      *http.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		client:      http.DefaultClient,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to the specified chat.
func (s *TelegramService) SendMessage(chatID, text string) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)

	msg := telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	resp, err := s.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(text string) error {
	if s.adminChatID == "" {
		log.Println("[Telegram] Admin chat ID not configured")
		return nil
	}
	return s.SendMessage(s.adminChatID, text)
}

// NotifyOrderCompleted tells the admin chat a payment was captured.
func (s *TelegramService) NotifyOrderCompleted(order *models.Order) error {
	if s.adminChatID == "" {
		return nil
	}

	var itemsList strings.Builder
	for i, item := range order.Items {
		itemsList.WriteString(fmt.Sprintf("%d. <b>%s</b> (%s/%s)\n   %d x %.2f = %.2f %s\n",
			i+1,
			item.ProductName,
			item.Size,
			item.Color,
			item.Quantity,
			item.UnitPrice,
			item.LineTotal,
			order.Currency,
		))
	}

	message := fmt.Sprintf(`<b>PAYMENT RECEIVED</b>
<b>Order:</b> %s
<b>Customer:</b> %s
<b>Items:</b>
%s
<b>Total:</b> %.2f %s
<b>Method:</b> %s
<b>Transaction:</b> %s`,
		order.OrderNumber,
		order.ShippingName,
		itemsList.String(),
		order.TotalAmount,
		order.Currency,
		order.PaymentMethod,
		order.TransactionID,
	)

	return s.SendToAdmin(strings.TrimSpace(message))
}
