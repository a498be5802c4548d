package rates

// Request is the checkout rate callback body.
type Request struct {
	Rate RateDetails `json:"rate"`
}

// RateDetails describes the cart being quoted.
type RateDetails struct {
	Origin      Address `json:"origin"`
	Destination Address `json:"destination"`
	Items       []Item  `json:"items"`
	Currency    string  `json:"currency"`
	Locale      string  `json:"locale,omitempty"`
}

// Address is a checkout address.
type Address struct {
	Name       string `json:"name"`
	Company    string `json:"company_name"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

// Item is a cart line. Price is in minor units.
type Item struct {
	Name             string `json:"name"`
	SKU              string `json:"sku"`
	Quantity         int    `json:"quantity"`
	Grams            int    `json:"grams"`
	Price            int64  `json:"price"`
	RequiresShipping bool   `json:"requires_shipping"`
}

// Quote is one shipping option returned to checkout. TotalPrice is a
// decimal string in major units.
type Quote struct {
	ServiceName     string `json:"service_name"`
	ServiceCode     string `json:"service_code"`
	TotalPrice      string `json:"total_price"`
	Currency        string `json:"currency"`
	Description     string `json:"description,omitempty"`
	MinDeliveryDate string `json:"min_delivery_date"`
	MaxDeliveryDate string `json:"max_delivery_date"`
}

// Response is the checkout rate callback response body.
type Response struct {
	Rates []Quote `json:"rates"`
}
