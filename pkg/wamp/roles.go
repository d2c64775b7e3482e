package wamp

// Role is a WAMP peer role advertised in HELLO or WELCOME details.
type Role string

const (
	RoleCaller     Role = "caller"
	RoleCallee     Role = "callee"
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"

	RoleBroker Role = "broker"
	RoleDealer Role = "dealer"
)

// ClientRoles are the four roles a client may play.
var ClientRoles = []Role{RoleCaller, RoleCallee, RolePublisher, RoleSubscriber}

// Features advertised for a role. The basic profile advertises none, but the
// subscriber role tells the broker which match policies it understands.
func roleFeatures(role Role) Dict {
	switch role {
	case RoleSubscriber:
		return Dict{"features": Dict{"pattern_based_subscription": true}}
	}
	return Dict{}
}

// RolesDetails builds the "roles" entry of HELLO details for roles.
func RolesDetails(roles []Role) Dict {
	out := make(Dict, len(roles))
	for _, role := range roles {
		out[string(role)] = roleFeatures(role)
	}
	return out
}

// RouterRoles extracts the roles a router announced in WELCOME details.
func RouterRoles(details Dict) []Role {
	roles, ok := details.Dict("roles")
	if !ok {
		return nil
	}
	var out []Role
	for _, role := range []Role{RoleBroker, RoleDealer} {
		if _, ok := roles[string(role)]; ok {
			out = append(out, role)
		}
	}
	return out
}
