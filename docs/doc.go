// Package docs carries the API-level swag annotations. `go generate ./docs`
// writes an OpenAPI document for client generation; the server does not
// serve it.
//
// LLM Document Parser API
//
//	@title			LLM Document Parser API
//	@version		1.0
//	@description	Extract schema-typed fields from documents, text and images with large language models.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/2018wzh/llm-doc-parser
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8000
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/docparser/serve.go -o ./swagger --parseDependency --parseInternal
