package models

import "fmt"

// ThreadColor is one immutable entry of a manufacturer's thread catalog.
type ThreadColor struct {
	Code string `json:"code"`
	Name string `json:"name"`
	RGB  RGB    `json:"rgb"`
}

func (t ThreadColor) Validate() error {
	if t.Code == "" {
		return fmt.Errorf("code is required")
	}
	if t.Name == "" {
		return fmt.Errorf("name is required for code %s", t.Code)
	}
	return nil
}
