package main

import "marketintel/cmd/handlers"

func main() {
	handlers.Execute()
}
