package main

// General API documentation for swaggo. Regenerate with `swag init -g cmd/asistan/docs.go`
// and build with `-tags swagger` to serve /swagger/.
//
// @title           asistan API
// @version         1.0
// @description     Local Turkish voice and text assistant: chat, vision, transcription and session control.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
