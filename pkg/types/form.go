package types

import "github.com/chargeguru/chargeguru/pkg/form"

// FormResponse is everything the parameter panel shows.
type FormResponse struct {
	State      form.State      `json:"state"`
	Options    form.Options    `json:"options"`
	Enablement form.Enablement `json:"enablement"`
}
