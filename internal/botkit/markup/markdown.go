package markup

import "strings"

var (
	// Все символы, которые MarkdownV2 считает разметкой, включая сам обратный слеш
	replacer = strings.NewReplacer(
		`\`, `\\`,
		"_", `\_`,
		"*", `\*`,
		"[", `\[`,
		"]", `\]`,
		"(", `\(`,
		")", `\)`,
		"~", `\~`,
		"`", "\\`",
		">", `\>`,
		"#", `\#`,
		"+", `\+`,
		"-", `\-`,
		"=", `\=`,
		"|", `\|`,
		"{", `\{`,
		"}", `\}`,
		".", `\.`,
		"!", `\!`,
	)

	// Внутри `code` телеграм требует экранировать только ` и \
	codeReplacer = strings.NewReplacer(
		`\`, `\\`,
		"`", "\\`",
	)
)

// Функция которая делает escape спец символы markdown специально для телеграма
func EscapeForMarkdown(src string) string {
	return replacer.Replace(src)
}

// EscapeForCode готовит текст для вставки между обратными кавычками
func EscapeForCode(src string) string {
	return codeReplacer.Replace(src)
}
