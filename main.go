package main

import "github.com/ValentinKolb/netlevel/cmd"

func main() {
	cmd.Execute()
}
