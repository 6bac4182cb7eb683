package ussd

const (
	prefixContinue = "CON "
	prefixEnd      = "END "
)

// Encode renders a reply for the telecom gateway. continues selects CON (expects more input) over END.
func Encode(continues bool, body string) string {
	if continues {
		return prefixContinue + body
	}
	return prefixEnd + body
}

type reply struct {
	continues bool
	body      string
}

func con(body string) reply { return reply{continues: true, body: body} }

func end(body string) reply { return reply{body: body} }

func (r reply) String() string { return Encode(r.continues, r.body) }
