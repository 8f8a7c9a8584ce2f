// Package web はサーバーが描画するHTMLテンプレートを埋め込みで提供します。
package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*.tmpl
var files embed.FS

// Templates は埋め込みテンプレートを解析して返します。テンプレート名はファイル名です。
func Templates() *template.Template {
	return template.Must(template.ParseFS(files, "templates/*.tmpl"))
}
