package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// Client — адаптер внешнего платёжного шлюза. Шлюз обязан быть
// идемпотентным по ключу Idempotency-Key: повтор с тем же ключом не
// проводит платёж второй раз. Поэтому на сетевые сбои делается ровно одна
// повторная попытка с тем же ключом, без бесконечных циклов.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CapturePayment захватывает платёж покупателя на сумму сделки.
func (c *Client) CapturePayment(ctx context.Context, transactionID uuid.UUID, amount int64, currency string, idempotencyKey string) (string, error) {
	payload := map[string]any{
		"transaction_id": transactionID,
		"amount":         amount,
		"currency":       currency,
	}
	result, err := c.post(ctx, "/v1/captures", payload, idempotencyKey)
	if err != nil {
		return "", err
	}
	ref, _ := result["payment_ref"].(string)
	if ref == "" {
		return "", apperror.New(apperror.ErrCodeGatewayFailure, "шлюз не вернул ссылку на платёж")
	}
	return ref, nil
}

// Payout переводит сумму на счёт получателя. milestoneID равен nil для
// выплаты остатка по сделке целиком.
func (c *Client) Payout(ctx context.Context, transactionID uuid.UUID, milestoneID *uuid.UUID, amount int64, currency, destinationAccount, idempotencyKey string) (string, error) {
	payload := map[string]any{
		"transaction_id":      transactionID,
		"milestone_id":        milestoneID,
		"amount":              amount,
		"currency":            currency,
		"destination_account": destinationAccount,
	}
	result, err := c.post(ctx, "/v1/payouts", payload, idempotencyKey)
	if err != nil {
		return "", err
	}
	ref, _ := result["payout_ref"].(string)
	if ref == "" {
		return "", apperror.New(apperror.ErrCodeGatewayFailure, "шлюз не вернул ссылку на выплату")
	}
	return ref, nil
}

// Refund возвращает сумму покупателю на исходный способ оплаты.
func (c *Client) Refund(ctx context.Context, transactionID uuid.UUID, amount int64, currency, idempotencyKey string) (string, error) {
	payload := map[string]any{
		"transaction_id": transactionID,
		"amount":         amount,
		"currency":       currency,
	}
	result, err := c.post(ctx, "/v1/refunds", payload, idempotencyKey)
	if err != nil {
		return "", err
	}
	ref, _ := result["refund_ref"].(string)
	if ref == "" {
		return "", apperror.New(apperror.ErrCodeGatewayFailure, "шлюз не вернул ссылку на возврат")
	}
	return ref, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, idempotencyKey string) (map[string]any, error) {
	if c.baseURL == "" {
		return nil, apperror.New(apperror.ErrCodeGatewayFailure, "адрес платёжного шлюза не задан")
	}

	result, err := c.doPost(ctx, path, payload, idempotencyKey)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, apperror.Wrap(ctx.Err(), apperror.ErrCodeGatewayFailure, "платёжный шлюз недоступен")
	}

	// Одна повторная попытка с тем же ключом идемпотентности.
	result, retryErr := c.doPost(ctx, path, payload, idempotencyKey)
	if retryErr != nil {
		return nil, apperror.Wrap(retryErr, apperror.ErrCodeGatewayFailure, "платёжный шлюз недоступен")
	}
	return result, nil
}

func (c *Client) doPost(ctx context.Context, path string, payload any, idempotencyKey string) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("payout gateway: код ответа %d", resp.StatusCode)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result, nil
}
