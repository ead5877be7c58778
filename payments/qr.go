package payments

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

// FundingQR renders a PNG QR code encoding a payment URI for topping up the
// given wallet with the given USD amount. Posters scan it to fund escrow out
// of band when their wallet balance is short.
func FundingQR(wallet string, amountUSD float64, size int) ([]byte, error) {
	if wallet == "" {
		return nil, fmt.Errorf("funding qr: empty wallet")
	}
	if amountUSD <= 0 {
		return nil, fmt.Errorf("funding qr: non-positive amount %.6f", amountUSD)
	}
	if size <= 0 {
		size = 256
	}
	uri := fmt.Sprintf("usdc:%s?amount=%.2f", wallet, amountUSD)
	png, err := qrcode.Encode(uri, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("funding qr: %w", err)
	}
	return png, nil
}
