package ledger

import (
	"encoding/json"

	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

func EncodeCustomer(customer loyalty.Customer) ([]byte, error) {
	return json.Marshal(customer)
}

func DecodeCustomer(data []byte) (loyalty.Customer, error) {
	var customer loyalty.Customer
	if err := json.Unmarshal(data, &customer); err != nil {
		return loyalty.Customer{}, err
	}
	return customer, nil
}

func EncodeConfig(cfg loyalty.TierConfig) ([]byte, error) {
	return json.Marshal(cfg)
}

func DecodeConfig(data []byte) (loyalty.TierConfig, error) {
	var cfg loyalty.TierConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return loyalty.TierConfig{}, err
	}
	return cfg, nil
}

func EncodeNotification(notification loyalty.Notification) ([]byte, error) {
	return json.Marshal(notification)
}

func DecodeNotification(data []byte) (loyalty.Notification, error) {
	var notification loyalty.Notification
	if err := json.Unmarshal(data, &notification); err != nil {
		return loyalty.Notification{}, err
	}
	return notification, nil
}
