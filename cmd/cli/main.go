package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "auth":
		handleAuth(args)
	case "tenant":
		handleTenant(args)
	case "call":
		handleCall(args)
	case "impound":
		handleImpound(args)
	case "member":
		handleMember(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleAuth(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: towdesk auth <register|login|logout|who>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "register":
		registerUser(args[1:])
	case "login":
		loginUser(args[1:])
	case "logout":
		logoutUser()
	case "who":
		whoAmI()
	default:
		fmt.Printf("unknown auth command: %s\n", subCmd)
	}
}

func handleTenant(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: towdesk tenant <list|select|current>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "list":
		listTenants()
	case "select":
		selectTenant(args[1:])
	case "current":
		currentTenant()
	default:
		fmt.Printf("unknown tenant command: %s\n", subCmd)
	}
}

func handleCall(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: towdesk call <list|get|claim|dashboard>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "list":
		listCalls(args[1:])
	case "get":
		getCall(args[1:])
	case "claim":
		claimCall(args[1:])
	case "dashboard":
		showDashboard()
	default:
		fmt.Printf("unknown call command: %s\n", subCmd)
	}
}

func handleImpound(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: towdesk impound <list|stats>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "list":
		listImpounds()
	case "stats":
		impoundStats()
	default:
		fmt.Printf("unknown impound command: %s\n", subCmd)
	}
}

func handleMember(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: towdesk member <list|drivers>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "list":
		listMembers()
	case "drivers":
		listDrivers()
	default:
		fmt.Printf("unknown member command: %s\n", subCmd)
	}
}

// Auth commands
func registerUser(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	name := fs.String("name", "", "full name")
	phone := fs.String("phone", "", "phone number")
	password := fs.String("password", "", "password")

	fs.Parse(args)

	if *email == "" || *name == "" || *password == "" {
		fmt.Println("Error: email, name, and password are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{
		"email":    *email,
		"name":     *name,
		"phone":    *phone,
		"password": *password,
	}

	data, _ := json.Marshal(payload)
	resp, err := http.Post(getAPIURL()+"/auth/register", "application/json", bytes.NewReader(data))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode == 201 {
		fmt.Printf("Registered: %s\n", *email)
		if token, ok := result["token"].(string); ok {
			saveToken(token)
		}
	} else {
		fmt.Printf("Registration failed: %v\n", result)
	}
}

func loginUser(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	password := fs.String("password", "", "password")

	fs.Parse(args)

	if *email == "" || *password == "" {
		fmt.Println("Error: email and password are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{"email": *email, "password": *password}
	data, _ := json.Marshal(payload)
	resp, err := http.Post(getAPIURL()+"/auth/login", "application/json", bytes.NewReader(data))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode == 200 {
		if token, ok := result["token"].(string); ok {
			saveToken(token)
			fmt.Printf("Logged in as: %s\n", *email)
		}
	} else {
		fmt.Printf("Login failed: %v\n", result)
	}
}

func logoutUser() {
	os.Remove(tokenFile())
	fmt.Println("Logged out")
}

func whoAmI() {
	result, status, err := apiGet("/auth/me")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Println("Not logged in")
		return
	}
	var profile map[string]interface{}
	json.Unmarshal(result, &profile)
	fmt.Printf("Logged in as %v (%v)\n", profile["name"], profile["email"])
}

// Tenant commands
func listTenants() {
	result, status, err := apiGet("/tenants")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("Error: %s\n", string(result))
		return
	}

	var tenants []map[string]interface{}
	json.Unmarshal(result, &tenants)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tROLES")
	for _, t := range tenants {
		tenant, _ := t["tenant"].(map[string]interface{})
		fmt.Fprintf(w, "%v\t%v\t%v\n", tenant["id"], tenant["name"], t["roles"])
	}
	w.Flush()
}

func selectTenant(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: towdesk tenant select <tenant-id>")
		return
	}

	payload := map[string]string{"tenant_id": args[0]}
	data, _ := json.Marshal(payload)
	result, status, err := apiPost("/tenants/select", data)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 204 {
		fmt.Printf("Error: %s\n", string(result))
		return
	}
	fmt.Printf("Active tenant: %s\n", args[0])
}

func currentTenant() {
	result, status, err := apiGet("/tenants/current")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("Error: %s\n", string(result))
		return
	}
	var tenant map[string]interface{}
	json.Unmarshal(result, &tenant)
	fmt.Printf("%v (%v)\n", tenant["name"], tenant["id"])
}

// Call commands
func listCalls(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	status := fs.String("status", "", "filter by status")
	mine := fs.Bool("mine", false, "only my assigned calls")

	fs.Parse(args)

	path := "/calls"
	switch {
	case *mine:
		path += "?mine=true"
	case *status != "":
		path += "?status=" + *status
	}

	result, code, err := apiGet(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if code != 200 {
		fmt.Printf("Error: %s\n", string(result))
		return
	}

	var calls []map[string]interface{}
	json.Unmarshal(result, &calls)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NUMBER\tSTATUS\tPRIORITY\tSERVICE\tPICKUP")
	for _, c := range calls {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n",
			c["call_number"], c["status"], c["priority"], c["service_type"], c["pickup_address"])
	}
	w.Flush()
}

func getCall(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: towdesk call get <call-id>")
		return
	}
	result, status, err := apiGet("/calls/" + args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("Error: %s\n", string(result))
		return
	}
	var out bytes.Buffer
	json.Indent(&out, result, "", "  ")
	fmt.Println(out.String())
}

func claimCall(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: towdesk call claim <call-id>")
		return
	}
	result, status, err := apiPost("/calls/"+args[0]+"/claim", nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("Claim failed: %s\n", string(result))
		return
	}
	var call map[string]interface{}
	json.Unmarshal(result, &call)
	fmt.Printf("Claimed %v\n", call["call_number"])
}

func showDashboard() {
	result, status, err := apiGet("/dashboard")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("Error: %s\n", string(result))
		return
	}
	var out bytes.Buffer
	json.Indent(&out, result, "", "  ")
	fmt.Println(out.String())
}

// Impound commands
func listImpounds() {
	result, status, err := apiGet("/impounds")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("Error: %s\n", string(result))
		return
	}

	var impounds []map[string]interface{}
	json.Unmarshal(result, &impounds)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVEHICLE\tSTATUS\tOWED\tBALANCE")
	for _, i := range impounds {
		vehicle := fmt.Sprintf("%v %v", i["vehicle_make"], i["vehicle_model"])
		fmt.Fprintf(w, "%v\t%v\t%v\t%.2f\t%.2f\n",
			i["id"], vehicle, i["status"], toFloat(i["amount_owed"]), toFloat(i["balance"]))
	}
	w.Flush()
}

func impoundStats() {
	result, status, err := apiGet("/impounds/stats")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("Error: %s\n", string(result))
		return
	}
	var out bytes.Buffer
	json.Indent(&out, result, "", "  ")
	fmt.Println(out.String())
}

// Member commands
func listMembers() {
	result, status, err := apiGet("/members")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("Error: %s\n", string(result))
		return
	}

	var members []map[string]interface{}
	json.Unmarshal(result, &members)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tEMAIL\tROLES\tACTIVE")
	for _, m := range members {
		membership, _ := m["membership"].(map[string]interface{})
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", m["name"], m["email"], membership["roles"], membership["active"])
	}
	w.Flush()
}

func listDrivers() {
	result, status, err := apiGet("/members/drivers")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("Error: %s\n", string(result))
		return
	}

	var drivers []map[string]interface{}
	json.Unmarshal(result, &drivers)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tON SHIFT\tACTIVE CALLS")
	for _, d := range drivers {
		fmt.Fprintf(w, "%v\t%v\t%v\n", d["name"], d["on_shift"], d["active_calls"])
	}
	w.Flush()
}

// Helper functions
func apiGet(path string) ([]byte, int, error) {
	req, _ := http.NewRequest("GET", getAPIURL()+path, nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return buf.Bytes(), resp.StatusCode, nil
}

func apiPost(path string, body []byte) ([]byte, int, error) {
	req, _ := http.NewRequest("POST", getAPIURL()+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return buf.Bytes(), resp.StatusCode, nil
}

func toFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

func getAPIURL() string {
	if url := os.Getenv("TOWDESK_API"); url != "" {
		return url
	}
	return "http://localhost:8080/api"
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return home + "/.towdesk/token"
}

func saveToken(token string) error {
	home, _ := os.UserHomeDir()
	os.MkdirAll(home+"/.towdesk", 0700)
	return os.WriteFile(tokenFile(), []byte(token), 0600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return string(data)
}

func addAuthHeader(req *http.Request) {
	token := loadToken()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func printUsage() {
	fmt.Print(`towdesk CLI

Usage:
  towdesk <command> [options]

Commands:
  auth     User authentication (register, login, logout, who)
  tenant   Company selection (list, select, current)
  call     Dispatch calls (list, get, claim, dashboard)
  impound  Impound lot (list, stats)
  member   Roster (list, drivers)
  help     Show this help message

Environment Variables:
  TOWDESK_API    API endpoint (default: http://localhost:8080/api)

Examples:
  towdesk auth login -email dispatch@example.com -password pass
  towdesk tenant select 6d0f1c2a
  towdesk call list -status open
  towdesk call claim 4b2e9d11
`)
}
