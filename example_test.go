package x402_test

import (
	"fmt"

	"github.com/auteng/x402-go"
)

func ExampleFormatPrice() {
	fmt.Println(x402.FormatPrice("2000", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", "eip155:8453"))
	fmt.Println(x402.FormatPrice("1500000", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", "base", x402.WithShort()))
	// Output:
	// $0.002 USDC on Base
	// $1.5 USDC
}

func ExampleParsePaymentRequired() {
	body := []byte(`{
		"x402Version": 1,
		"accepts": [{
			"scheme": "exact",
			"network": "base",
			"maxAmountRequired": "10000",
			"asset": "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			"payTo": "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
			"resource": "https://api.example.com/data"
		}]
	}`)

	req := x402.ParsePaymentRequired(body)
	opt := req.Accepts[0]
	fmt.Println(req.X402Version, req.Resource.URL)
	fmt.Println(x402.FormatPrice(opt.Amount, opt.Asset, opt.Network))
	// Output:
	// 1 https://api.example.com/data
	// $0.01 USDC on Base
}
