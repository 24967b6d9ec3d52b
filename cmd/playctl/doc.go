// Command playctl drives a running CodeLive server from the terminal.
//
// Usage:
//
//	# Run local files in the playground
//	playctl run -html index.html -css style.css -js app.js
//
//	# Browse and load starter templates
//	playctl templates
//	playctl load canvas
//
//	# Tail the console panel
//	playctl console -follow
//
// The server defaults to http://localhost:8000 and can be changed with
// -server or CODELIVE_URL.
package main
