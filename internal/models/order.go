// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package models

import "strings"

// Client identifies the trading partner an order belongs to.
type Client string

const (
	ClientTalabat   Client = "Talabat"
	ClientBreadfast Client = "Breadfast"
	ClientGoodsMart Client = "GoodsMart"
	ClientHalan     Client = "Halan"
	ClientRabbit    Client = "Rabbit"
	ClientKhateer   Client = "Khateer"
	ClientUnknown   Client = "Unknown"
)

// Slug is the lowercase form used as a filename prefix.
func (c Client) Slug() string {
	return strings.ToLower(string(c))
}

const (
	// OrderTypePurchaseOrder is the only order type this service emits.
	OrderTypePurchaseOrder = "Purchase Order"

	// StatusPending is the status every record carries when it is emitted.
	StatusPending = "Pending"
)

// OrderRecord is the normalised submission handed to an upload sink.
// Dates are ISO calendar dates (YYYY-MM-DD). City and PONumber are empty
// when the partner does not provide them.
type OrderRecord struct {
	MessageID       string `json:"-"`
	Client          Client `json:"client"`
	OrderType       string `json:"order_type"`
	OrderDate       string `json:"order_date"`
	DeliveryDate    string `json:"delivery_date"`
	Status          string `json:"status"`
	City            string `json:"city,omitempty"`
	PONumber        string `json:"po_number,omitempty"`
	PayloadFilename string `json:"file_path"`
	Payload         []byte `json:"-"`
}
