package funding

// CallbackRequest is the settlement notification posted by the payment rail.
type CallbackRequest struct {
	Reference string `json:"reference" form:"reference"`
	Status    string `json:"status" form:"status"`
}

// CallbackResponse acknowledges a settlement.
type CallbackResponse struct {
	TransactionID string `json:"transaction_id"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
}
