package main

import "ShopHub/server"

func main() {
	s := server.NewServer()
	s.Start(s.Config.Server.Addr)
}
