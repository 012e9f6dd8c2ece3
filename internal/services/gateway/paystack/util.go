package paystack

import (
	"net/http"
)

func (p *paystack) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Accept", "application/json")
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
}
