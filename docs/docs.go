// Package docs registers the OpenAPI description served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/tasks": {
            "get": {"tags": ["Tasks"], "summary": "Список задач", "parameters": [{"type": "string", "name": "company_id", "in": "query"}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Tasks"], "summary": "Создать задачу", "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "403": {"description": "Forbidden"}}}
        },
        "/tasks/{id}": {
            "get": {"tags": ["Tasks"], "summary": "Карточка задачи", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/tasks/{id}/status": {
            "patch": {"tags": ["Tasks"], "summary": "Сменить статус задачи", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}, "409": {"description": "Conflict"}}}
        },
        "/tasks/{id}/transitions": {
            "get": {"tags": ["Tasks"], "summary": "Доступные статусы", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}
        },
        "/tasks/{id}/comments": {
            "get": {"tags": ["Tasks"], "summary": "Комментарии", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Tasks"], "summary": "Добавить комментарий", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"201": {"description": "Created"}}}
        },
        "/tasks/{id}/files": {
            "get": {"tags": ["Tasks"], "summary": "Файлы задачи", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Tasks"], "summary": "Прикрепить файл", "consumes": ["multipart/form-data"], "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}, {"type": "file", "name": "file", "in": "formData", "required": true}], "responses": {"201": {"description": "Created"}}}
        },
        "/tasks/{id}/files/{file_id}": {
            "get": {"tags": ["Tasks"], "summary": "Скачать файл", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}, {"type": "string", "name": "file_id", "in": "path", "required": true}, {"type": "string", "name": "thumb", "in": "query"}], "responses": {"200": {"description": "OK"}}}
        },
        "/companies": {
            "get": {"tags": ["Companies"], "summary": "Список компаний", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Companies"], "summary": "Создать компанию", "responses": {"201": {"description": "Created"}, "403": {"description": "Forbidden"}}}
        },
        "/companies/rollup": {
            "get": {"tags": ["Companies"], "summary": "Задачи по компаниям", "responses": {"200": {"description": "OK"}}}
        },
        "/users": {
            "get": {"tags": ["Users"], "summary": "Список сотрудников", "responses": {"200": {"description": "OK"}}}
        },
        "/users/me": {
            "get": {"tags": ["Users"], "summary": "Текущий пользователь", "responses": {"200": {"description": "OK"}}}
        },
        "/users/{id}/role": {
            "patch": {"tags": ["Users"], "summary": "Изменить роль сотрудника", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}}
        },
        "/reports/tasks.pdf": {
            "get": {"tags": ["Reports"], "summary": "PDF-отчёт по задачам", "produces": ["application/pdf"], "responses": {"200": {"description": "OK"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "taskbot API",
	Description:      "Задачи, компании и уведомления о дедлайнах",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
