package chat

// SystemInstruction is the persona the assistant session is bound to.
const SystemInstruction = `You are a helpful assistant and expert on a software called "Robô de Importação Automática de XML (Sefaz)".
Your function is to answer questions about this robot.
Key features of the robot:
- Function: Uses an A1 certificate to download issued and received NF-e (electronic invoices).
- Execution process:
  1. Authenticates with the webservice.
  2. Stores the XML and PDF files of the invoices.
  3. Notifies the user about new invoices.
Keep your answers concise and focused on these features unless asked otherwise.`

// Greeting is the first assistant message after a successful Initialize.
const Greeting = "Olá! Sou o assistente do Robô de Importação de XML. Como posso ajudar você hoje?"

// Fallback replaces the assistant reply when an exchange fails.
const Fallback = "Desculpe, não consegui processar sua solicitação. Por favor, tente novamente."

// MissingCredentialMessage is reported when no API key is configured.
const MissingCredentialMessage = "API_KEY environment variable not set."

// exchangeErrorFormat prefixes exchange failures with the provider's display name.
const exchangeErrorFormat = "Failed to get response from %s. %s"
