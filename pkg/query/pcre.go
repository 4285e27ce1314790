package query

import (
	"strings"

	goelarapcre "go.elara.ws/pcre"

	"github.com/pkg/errors"
)

// exprPcre matches the base name or whole name against a true PCRE
// pattern, distinct from exprMatch's shell-glob syntax, using
// go.elara.ws/pcre as the PCRE binding.
type exprPcre struct {
	re        *goelarapcre.Regexp
	wholeName bool
}

func newPcreExpr(pattern string, wholeName bool) (Expr, error) {
	re, err := goelarapcre.Compile(pattern)
	if err != nil {
		return nil, errors.Wrap(err, "invalid pcre pattern")
	}
	return exprPcre{re: re, wholeName: wholeName}, nil
}

func (e exprPcre) eval(c Candidate, caseSensitive bool) (bool, error) {
	subject := c.baseName()
	if e.wholeName {
		subject = c.WholeName
	}
	if !caseSensitive {
		subject = strings.ToLower(subject)
	}
	return e.re.MatchString(subject), nil
}
