package notify

import (
	"html"
	"strings"
)

const escalationPlain = `Hi,

If you are reading this, I have not checked in for a long while.
This message was sent automatically because I stopped responding.`

// EscalationBodies 升级邮件的纯文本与 HTML 正文，link 非空时附在末尾
func EscalationBodies(link string) (plain, htmlBody string) {
	link = strings.TrimSpace(link)

	plain = escalationPlain
	if link != "" {
		plain += "\n\n" + link
	}

	var b strings.Builder
	b.WriteString("<html>\n<body>\n<p>")
	b.WriteString(strings.ReplaceAll(html.EscapeString(escalationPlain), "\n", "<br>"))
	if link != "" {
		escaped := html.EscapeString(link)
		b.WriteString(`<br><br><a href="` + escaped + `">` + escaped + "</a>")
	}
	b.WriteString("</p>\n</body>\n</html>\n")

	return plain, b.String()
}
