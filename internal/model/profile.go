package model

import "time"

// UserProfile is the mutable per-user profile in the `userProfiles`
// collection, keyed by the user's identity.  Every demographic field is
// optional; a nil pointer means the field is not stored.
type UserProfile struct {
	UserID       string    `json:"userId"`
	Email        string    `json:"email,omitempty"`
	Name         *string   `json:"name,omitempty"`
	Position     *string   `json:"position,omitempty"`
	ContactPhone *string   `json:"contactPhone,omitempty"`
	BirthDate    *string   `json:"birthDate,omitempty"` // YYYY-MM-DD
	Sex          *string   `json:"sex,omitempty"`
	HeightCm     *float64  `json:"heightCm,omitempty"`
	WeightKg     *float64  `json:"weightKg,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ProfilePatch describes a profile mutation.  Absent fields are left alone,
// set fields are written and cleared fields are removed.
type ProfilePatch struct {
	Name         Optional[string]  `json:"name"`
	Position     Optional[string]  `json:"position"`
	ContactPhone Optional[string]  `json:"contactPhone"`
	BirthDate    Optional[string]  `json:"birthDate"`
	Sex          Optional[string]  `json:"sex"`
	HeightCm     Optional[float64] `json:"heightCm"`
	WeightKg     Optional[float64] `json:"weightKg"`
}

// Fields splits the patch into document values to write and field names to
// remove.  Absent fields appear in neither.
func (p ProfilePatch) Fields() (set map[string]any, unset []string) {
	set = map[string]any{}
	put := func(name string, isSet, isCleared bool, v any) {
		switch {
		case isSet:
			set[name] = v
		case isCleared:
			unset = append(unset, name)
		}
	}
	put("name", p.Name.IsSet(), p.Name.IsCleared(), p.Name.ValueOr(""))
	put("position", p.Position.IsSet(), p.Position.IsCleared(), p.Position.ValueOr(""))
	put("contactPhone", p.ContactPhone.IsSet(), p.ContactPhone.IsCleared(), p.ContactPhone.ValueOr(""))
	put("birthDate", p.BirthDate.IsSet(), p.BirthDate.IsCleared(), p.BirthDate.ValueOr(""))
	put("sex", p.Sex.IsSet(), p.Sex.IsCleared(), p.Sex.ValueOr(""))
	put("heightCm", p.HeightCm.IsSet(), p.HeightCm.IsCleared(), p.HeightCm.ValueOr(0))
	put("weightKg", p.WeightKg.IsSet(), p.WeightKg.IsCleared(), p.WeightKg.ValueOr(0))
	return set, unset
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	set, unset := p.Fields()
	return len(set) == 0 && len(unset) == 0
}

// Replacing turns the patch into a full replacement: every absent field
// becomes cleared.
func (p ProfilePatch) Replacing() ProfilePatch {
	p.Name = orCleared(p.Name)
	p.Position = orCleared(p.Position)
	p.ContactPhone = orCleared(p.ContactPhone)
	p.BirthDate = orCleared(p.BirthDate)
	p.Sex = orCleared(p.Sex)
	p.HeightCm = orCleared(p.HeightCm)
	p.WeightKg = orCleared(p.WeightKg)
	return p
}

func orCleared[T any](o Optional[T]) Optional[T] {
	if o.IsAbsent() {
		return Cleared[T]()
	}
	return o
}
