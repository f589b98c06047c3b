package server

import (
	"bytes"
	"encoding/json"

	"classifieds/internal/service"

	"github.com/gofiber/fiber/v2"
)

// formValue accepts a JSON string, number or null so API clients may send
// prices and category ids either way. Form posts decode into it as plain text.
type formValue string

func (v *formValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = formValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = formValue(n.String())
	return nil
}

type productForm struct {
	Title       formValue `json:"title" form:"title"`
	Description formValue `json:"description" form:"description"`
	Price       formValue `json:"price" form:"price"`
	Category    formValue `json:"category" form:"category"`
	Condition   formValue `json:"condition" form:"condition"`
	Status      formValue `json:"status" form:"status"`
	Location    formValue `json:"location" form:"location"`
}

func (f productForm) input() service.ProductInput {
	return service.ProductInput{
		Title:       string(f.Title),
		Description: string(f.Description),
		Price:       string(f.Price),
		Category:    string(f.Category),
		Condition:   string(f.Condition),
		Status:      string(f.Status),
		Location:    string(f.Location),
	}
}

type messageForm struct {
	Content formValue `json:"content" form:"content"`
}

// bindForm decodes a JSON or urlencoded body into dst. An unreadable body
// leaves dst empty so the form is reported through field validation.
func bindForm(c *fiber.Ctx, dst any) {
	if len(c.Body()) == 0 {
		return
	}
	_ = c.BodyParser(dst)
}
