package checkout

import (
	"errors"
	"reflect"
	"strings"

	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// requiredOrder is the order in which missing fields are reported.
var requiredOrder = []string{"first_name", "last_name", "address1", "postal_code", "city"}

func normalizeAddress(a orders.Address, defaultCountry string) orders.Address {
	a.FirstName = strings.TrimSpace(a.FirstName)
	a.LastName = strings.TrimSpace(a.LastName)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Address1 = strings.TrimSpace(a.Address1)
	a.Address2 = strings.TrimSpace(a.Address2)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.City = strings.TrimSpace(a.City)
	a.Country = strings.TrimSpace(a.Country)
	if a.Country == "" {
		a.Country = defaultCountry
	}
	return a
}

// validateAddresses checks every required field on both addresses and reports
// the first field, in requiredOrder, missing from either of them.
func validateAddresses(shipping, billing orders.Address) error {
	missing := map[string]string{}
	var first []string
	for _, a := range []struct {
		name string
		addr orders.Address
	}{{"shipping", shipping}, {"billing", billing}} {
		err := validate.Struct(a.addr)
		if err == nil {
			continue
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			if _, seen := missing[fe.Field()]; !seen {
				missing[fe.Field()] = a.name
				first = append(first, fe.Field())
			}
		}
	}
	for _, f := range requiredOrder {
		if which, ok := missing[f]; ok {
			return &AddressError{Address: which, Field: f}
		}
	}
	if len(first) > 0 {
		return &AddressError{Address: missing[first[0]], Field: first[0]}
	}
	return nil
}
