package enums

// ActorRole is the role claim carried by access tokens.
type ActorRole string

const (
	ActorRoleBuyer  ActorRole = "buyer"
	ActorRoleSeller ActorRole = "seller"
	ActorRoleAdmin  ActorRole = "admin"
	ActorRoleSystem ActorRole = "system"
)

func (a ActorRole) String() string { return string(a) }

// IsValid reports whether the value is a known ActorRole.
func (a ActorRole) IsValid() bool {
	return member(a, ActorRoleBuyer, ActorRoleSeller, ActorRoleAdmin, ActorRoleSystem)
}
