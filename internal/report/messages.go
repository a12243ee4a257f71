package report

import (
	"fmt"
	"html"
)

// Replies to bot commands.

const connectedMessage = "✅ ¡Conectado! Recibirás el resumen el día 1 de cada mes a las 7 AM."

// FormatConnected confirms a /start registration. The default schedule
// keeps the historical wording.
func FormatConnected(day, hour int) string {
	if day == 1 && hour == 7 {
		return connectedMessage
	}
	return fmt.Sprintf("✅ ¡Conectado! Recibirás el resumen el día %d de cada mes a las %d:00.", day, hour)
}

func FormatHelp() string {
	return "🤖 <b>Comandos disponibles</b>\n\n" +
		"/start - Conectar este chat para recibir el resumen mensual\n" +
		"/resumen - Resumen del mes en curso\n" +
		"/comparar - Comparar este mes con el anterior\n" +
		"/help - Mostrar esta ayuda"
}

func FormatUnknownCommand(cmd string) string {
	return fmt.Sprintf("🤔 No conozco el comando %s. Usa /help para ver los comandos.", html.EscapeString(cmd))
}

func FormatFailure() string {
	return "⚠️ No se pudo obtener el resumen. Inténtalo de nuevo más tarde."
}

func FormatInvalidPeriod(arg string) string {
	return fmt.Sprintf("⚠️ Periodo inválido: %s. Usa el formato AAAA-MM, por ejemplo 2024-01.", html.EscapeString(arg))
}
