package main

func main() {
	runServe()
}
