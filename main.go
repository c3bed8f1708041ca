package main

import "vehiclereport/internal/app"

func main() {
	app.Main()
}
