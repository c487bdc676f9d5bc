package outbox

import (
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
)

func TableLabel(table pgx.Identifier) string {
	return strings.Join(table, ".")
}

func logrusNop() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}
